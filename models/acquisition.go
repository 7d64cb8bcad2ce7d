package models

// Header is the acquisition metadata written once at the start of a list-mode
// file. The sampler never interprets it, it is copied as-is to the output.
type Header struct {
	Scanner ScannerInformation
	Exam    *ExamInformation
}

type ScannerInformation struct {
	ModelName         string
	NumberOfDetectors uint32

	// edges of the TOF and energy bins, in mm and keV
	TOFBinEdges    []float32
	EnergyBinEdges []float32

	TOFResolution         float32
	EnergyResolutionAt511 float32
}

type ExamInformation struct {
	Subject     Subject
	Institution Institution
}

type Subject struct {
	ID   string
	Name *string
}

type Institution struct {
	Name    string
	Address string
}
