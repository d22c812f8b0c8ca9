package dto

// SetProviderRequest switches the active tile provider/style at runtime.
type SetProviderRequest struct {
	Provider string `json:"provider" validate:"required"`
	Style    string `json:"style" validate:"omitempty"`
	APIKey   string `json:"api_key" validate:"omitempty"`
}

// PreloadRequest asks the service to warm the cache for an area.
type PreloadRequest struct {
	North float64 `json:"north" validate:"gte=-90,lte=90"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
	Zoom  int     `json:"zoom" validate:"gte=0,lte=22"`
}

// PreloadResponse reports how many fetches the preload started.
type PreloadResponse struct {
	Triggered int `json:"triggered"`
}
