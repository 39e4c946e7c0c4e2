package core

import "strings"

type PaperSize struct {
	Name     string
	Code     int
	WidthMM  float64
	HeightMM float64
}

var (
	PaperLetter    = PaperSize{Name: "Letter", Code: 1, WidthMM: 215.9, HeightMM: 279.4}
	PaperTabloid   = PaperSize{Name: "Tabloid", Code: 3, WidthMM: 279.4, HeightMM: 431.8}
	PaperLegal     = PaperSize{Name: "Legal", Code: 5, WidthMM: 215.9, HeightMM: 355.6}
	PaperStatement = PaperSize{Name: "Statement", Code: 6, WidthMM: 139.7, HeightMM: 215.9}
	PaperExecutive = PaperSize{Name: "Executive", Code: 7, WidthMM: 184.15, HeightMM: 266.7}
	PaperA3        = PaperSize{Name: "A3", Code: 8, WidthMM: 297, HeightMM: 420}
	PaperA4        = PaperSize{Name: "A4", Code: 9, WidthMM: 210, HeightMM: 297}
	PaperA5        = PaperSize{Name: "A5", Code: 11, WidthMM: 148, HeightMM: 210}
	PaperB4        = PaperSize{Name: "B4", Code: 12, WidthMM: 250, HeightMM: 353}
	PaperB5        = PaperSize{Name: "B5", Code: 13, WidthMM: 176, HeightMM: 250}
	PaperFolio     = PaperSize{Name: "Folio", Code: 14, WidthMM: 215.9, HeightMM: 330.2}
)

// DefaultPaper is used for unknown paper names.
var DefaultPaper = PaperA4

var paperTable = map[string]PaperSize{
	"letter":    PaperLetter,
	"tabloid":   PaperTabloid,
	"legal":     PaperLegal,
	"statement": PaperStatement,
	"executive": PaperExecutive,
	"a3":        PaperA3,
	"a4":        PaperA4,
	"a5":        PaperA5,
	"b4":        PaperB4,
	"b5":        PaperB5,
	"folio":     PaperFolio,
}

// LookupPaper resolves a paper name. ok is false when the name is unknown and
// DefaultPaper was returned instead.
func LookupPaper(name string) (PaperSize, bool) {
	p, ok := paperTable[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DefaultPaper, false
	}
	return p, true
}

func PaperNames() []string {
	return []string{"A3", "A4", "A5", "B4", "B5", "Letter", "Legal", "Tabloid", "Executive", "Folio", "Statement"}
}
