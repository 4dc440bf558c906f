package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// NavigateRequest selects the active image by index
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// ViewportRequest reports the client's current viewport width
type ViewportRequest struct {
	Width int `json:"width" binding:"required,min=1"`
}

// ImageListResponse lists the image refs and the active selection
type ImageListResponse struct {
	Images  []string `json:"images"`
	Current int      `json:"current"`
}

// AnalyzeAccepted is returned when an analysis run has been started
type AnalyzeAccepted struct {
	RunID string `json:"run_id"`
	Image string `json:"image"`
	Boxes int    `json:"boxes"`
}

// ViewportResponse reports the canvas tier after a resize
type ViewportResponse struct {
	Width        int  `json:"width"`
	CanvasWidth  int  `json:"canvas_width"`
	CanvasHeight int  `json:"canvas_height"`
	Changed      bool `json:"changed"`
}
