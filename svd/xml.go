package svd

type xmlDevice struct {
	Name        string          `xml:"name"`
	Peripherals []xmlPeripheral `xml:"peripherals>peripheral"`
}

type xmlPeripheral struct {
	DerivedFrom   string            `xml:"derivedFrom,attr"`
	Name          string            `xml:"name"`
	Description   string            `xml:"description"`
	GroupName     string            `xml:"groupName"`
	BaseAddress   string            `xml:"baseAddress"`
	AddressBlocks []xmlAddressBlock `xml:"addressBlock"`
	Interrupts    []xmlInterrupt    `xml:"interrupt"`
	Registers     *xmlRegisters     `xml:"registers"`
}

type xmlAddressBlock struct {
	Offset string `xml:"offset"`
	Size   string `xml:"size"`
	Usage  string `xml:"usage"`
}

type xmlInterrupt struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

type xmlRegisters struct {
	Registers []xmlRegister `xml:"register"`
	Clusters  []xmlCluster  `xml:"cluster"`
}

type dim struct {
	Dim          string `xml:"dim"`
	DimIncrement string `xml:"dimIncrement"`
	DimIndex     string `xml:"dimIndex"`
}

type xmlRegister struct {
	dim
	Name          string `xml:"name"`
	AddressOffset string `xml:"addressOffset"`
	ResetValue    string `xml:"resetValue"`
	Access        string `xml:"access"`
}

type xmlCluster struct {
	dim
	xmlRegisters
	Name          string `xml:"name"`
	AddressOffset string `xml:"addressOffset"`
}
