package models

// --- Structs for request binding ---

type CreateConfessionInput struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	Nickname string `json:"nickname"`
}

type CreateCommentInput struct {
	Content  string `json:"content"`
	Nickname string `json:"nickname"`
}

type UpdateStatusInput struct {
	Status string `json:"status"`
}

type LoginInput struct {
	Password string `json:"password"`
}
