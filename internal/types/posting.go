package types

// JobPosting is the normalized record the Job Scout feed delivers. The
// tailoring pipeline consumes only ID and RawText; Title and Company are
// carried for display and filenames.
type JobPosting struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Company string `json:"company"`
	RawText string `json:"raw_text"`
}
