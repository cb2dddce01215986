package todo

import "fmt"

// Pages returns how many pages n to-dos take; never less than one.
func Pages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PageSize - 1) / PageSize
}

// NormalizePage wraps page into [0, pages) so that stepping before the first
// page lands on the last one and past the last lands on the first.
func NormalizePage(page, pages int) int {
	if pages <= 0 {
		return 0
	}
	page %= pages
	if page < 0 {
		page += pages
	}
	return page
}

// Page returns the to-dos shown on page (zero based) after normalising it.
func Page(items []Todo, page int) ([]Todo, int) {
	page = NormalizePage(page, Pages(len(items)))
	start := page * PageSize
	if start >= len(items) {
		return nil, page
	}
	end := start + PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], page
}

// Footer describes page position and the number of open to-dos.
func Footer(items []Todo, page int) string {
	open := 0
	for _, t := range items {
		if !t.Done() {
			open++
		}
	}
	return fmt.Sprintf("Page %d/%d: %d uncompleted TODOs", page+1, Pages(len(items)), open)
}

// Title is the heading of one to-do in a listing.
func Title(t Todo, assignee string) string {
	title := fmt.Sprintf("[%d]", t.ID)
	if t.Done() {
		title += " [DONE]"
	}
	if assignee != "" {
		title += " - " + assignee
	}
	return title
}
