// Package medicine holds the static catalog of dispensable medicines.
package medicine

var catalog = []string{
	"Paracetamol",
	"Azithromycin",
	"Metformin",
	"Omeprazole",
	"Atorvastatin",
	"Amlodipine",
	"Losartan",
	"Cefixime",
	"Pantoprazole",
	"Cetirizine",
	"Ibuprofen",
	"Amoxicillin",
	"Ciprofloxacin",
	"Levofloxacin",
	"Ranitidine",
	"Fexofenadine",
	"Loratadine",
	"Diclofenac",
	"Gliclazide",
	"Clopidogrel",
}

var index = func() map[string]struct{} {
	m := make(map[string]struct{}, len(catalog))
	for _, name := range catalog {
		m[name] = struct{}{}
	}
	return m
}()

// Names returns a copy of the catalog in its canonical order
func Names() []string {
	out := make([]string, len(catalog))
	copy(out, catalog)
	return out
}

// Contains reports whether name is in the catalog (case-sensitive)
func Contains(name string) bool {
	_, ok := index[name]
	return ok
}
