package dto

import "time"

// SignedLinkRequest asks for a temporary link to a stored file.
type SignedLinkRequest struct {
	Path string `json:"path" binding:"required,max=1024"`
	// TTLSeconds overrides the configured link lifetime when positive
	TTLSeconds int `json:"ttl_seconds" binding:"omitempty,min=1,max=604800"`
}

// SignedLinkResponse is a freshly minted temporary link.
type SignedLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
