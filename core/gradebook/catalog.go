package gradebook

// DefaultCatalog is the catalog a fresh gradebook is seeded with.
func DefaultCatalog() Catalog {
	return Catalog{
		Classes: []CatalogItem{
			{ID: "cls_1_101", Name: "JSS 1-101"},
			{ID: "cls_1_102", Name: "JSS 1-102"},
			{ID: "cls_2_101", Name: "JSS 2-101"},
			{ID: "cls_2_102", Name: "JSS 2-102"},
			{ID: "cls_3_101", Name: "JSS 3-101"},
			{ID: "cls_3_102", Name: "JSS 3-102"},
		},
		Subjects: []CatalogItem{
			{ID: "subj_1", Name: "Integrated Science"},
			{ID: "subj_2", Name: "Agriculture"},
			{ID: "subj_3", Name: "Mathematics"},
			{ID: "subj_4", Name: "English Language"},
		},
		Terms: []CatalogItem{
			{ID: "term_1", Name: "1st Term"},
			{ID: "term_2", Name: "2nd Term"},
			{ID: "term_3", Name: "3rd Term"},
		},
	}
}

// CatalogKind names one of the catalog lists.
type CatalogKind string

const (
	KindClass   CatalogKind = "class"
	KindSubject CatalogKind = "subject"
	KindTerm    CatalogKind = "term"
)

// Items returns the list of kind.
func (c Catalog) Items(kind CatalogKind) []CatalogItem {
	switch kind {
	case KindClass:
		return c.Classes
	case KindSubject:
		return c.Subjects
	case KindTerm:
		return c.Terms
	}
	return nil
}

// Find looks an item up by id, falling back to a case-insensitive name match.
func (c Catalog) Find(kind CatalogKind, idOrName string) (CatalogItem, bool) {
	items := c.Items(kind)
	for _, it := range items {
		if it.ID == idOrName {
			return it, true
		}
	}
	key := nameKey(idOrName)
	for _, it := range items {
		if nameKey(it.Name) == key {
			return it, true
		}
	}
	return CatalogItem{}, false
}

// NameOf returns the display name of an id, or the id itself if it is unknown.
func (c Catalog) NameOf(kind CatalogKind, id string) string {
	if it, ok := c.Find(kind, id); ok {
		return it.Name
	}
	return id
}
