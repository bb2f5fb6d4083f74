package pagination

// CalculateOffset returns the row offset of a 1-based page.
func CalculateOffset(page, limit int) int {
	return (page - 1) * limit
}

// CalculateTotalPages is ceil(total/limit), and 1 for an empty result.
func CalculateTotalPages(total int64, limit int) int {
	if total == 0 {
		return 1
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
