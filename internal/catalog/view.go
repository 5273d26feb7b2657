package catalog

import "github.com/mmynk/storefront/internal/models"

// View is the browsing state of a product list: a keyword and a growing
// window. It holds no products itself.
type View struct {
	Keyword string
	Window  int
}

// NewView starts with an empty keyword and one page visible.
func NewView() View {
	return View{Window: PageSize}
}

// LoadMore grows the window by one page.
func (v View) LoadMore() View {
	v.Window += PageSize
	return v
}

// ShowPages sets the window to pages pages (at least one). pages is capped
// at one past the last page of total products, so the window stays small
// whatever the caller asks for.
func (v View) ShowPages(pages, total int) View {
	maxPages := total/PageSize + 1
	pages = min(max(pages, 1), maxPages)
	v.Window = pages * PageSize
	return v
}

// Result is what a view shows over a product list.
type Result struct {
	Visible   []models.Product
	Matching  int
	HasMore   bool
	NoResults bool
}

// Apply filters products by keyword and slices the window.
func (v View) Apply(products []models.Product) Result {
	window := v.Window
	if window <= 0 {
		window = PageSize
	}
	matching := Filter(products, v.Keyword)
	return Result{
		Visible:   Page(matching, window),
		Matching:  len(matching),
		HasMore:   window < len(matching),
		NoResults: len(matching) == 0,
	}
}
