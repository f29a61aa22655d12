package extract

// Result summarizes a successful extraction.
type Result struct {
	FilePath   string `json:"file_path"`
	FrameCount int    `json:"frame_count"`
	Name       string `json:"name"`
	OriginalID int    `json:"original_id"`
	Candidates []int  `json:"candidates"`
}
