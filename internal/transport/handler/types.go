package handler

// ConvertParams are the user-tunable knobs of a conversion request,
// parsed from multipart form fields. Upper bounds are deployment
// config, enforced by the pipeline before anything is spawned.
type ConvertParams struct {
	DPI  int `validate:"gte=1"`
	Page int `validate:"gte=1"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type PageImage struct {
	PageNumber  int    `json:"page_number"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
}

type ConvertAllResponse struct {
	Filename   string      `json:"filename"`
	TotalPages int         `json:"total_pages"`
	Images     []PageImage `json:"images"`
}
