package upload

// UpdateRequest is a partial patch; nil fields are left untouched.
type UpdateRequest struct {
	Name    *string   `json:"name" validate:"omitempty,min=1,max=255"`
	Summary *string   `json:"summary"`
	Tags    *[]string `json:"tags" validate:"omitempty,dive,max=120"`
}

type AnalyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

type RevalidateRequest struct {
	Tag string `json:"tag"`
}
