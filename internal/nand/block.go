package nand

// ───────────────────────────────────────────────────────────────────────────
// Block
// ───────────────────────────────────────────────────────────────────────────

// block is one erase unit: an ordered run of pages plus wear and
// reclamation accounting.
type block struct {
	pages []page

	// eraseCount is monotonic across the device's life; it survives in
	// the on-disk image.
	eraseCount uint32

	// invalidPages caches the number of pages in PageInvalid state. It is
	// derived from the page states but authoritative for GC victim
	// selection; setState keeps it coherent.
	invalidPages int
}

func newBlock(g Geometry) block {
	b := block{pages: make([]page, g.PagesPerBlock)}
	for i := range b.pages {
		b.pages[i].data = make([]byte, g.PageSize)
		b.pages[i].reset()
	}
	return b
}

// erase resets every page to Free and clears the invalid counter. The
// erase counter advances and never goes back.
func (b *block) erase() {
	for i := range b.pages {
		b.pages[i].reset()
	}
	b.invalidPages = 0
	b.eraseCount++
}
