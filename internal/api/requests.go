package api

type transcriptRequest struct {
	Text  string `json:"text" validate:"required,max=10000"`
	Final bool   `json:"final"`
}

type recordingRequest struct {
	Recording *bool `json:"recording" validate:"required"`
}

type credentialRequest struct {
	Key string `json:"key" validate:"required,max=512"`
}

// hitRequest locates a click on a rendered layout. Width and Height are the
// viewport the layout was computed for.
type hitRequest struct {
	X      *float64 `json:"x" validate:"required"`
	Y      *float64 `json:"y" validate:"required"`
	Width  float64  `json:"width" validate:"gt=0,lte=20000"`
	Height float64  `json:"height" validate:"gt=0,lte=20000"`
	Radius float64  `json:"radius,omitempty" validate:"gte=0"`
}

type layoutQuery struct {
	Width     float64 `json:"width" validate:"gt=0,lte=20000"`
	Height    float64 `json:"height" validate:"gt=0,lte=20000"`
	Direction string  `json:"direction" validate:"omitempty,oneof=TB LR"`
}

// wsMessage is a client-to-server websocket text frame.
type wsMessage struct {
	Type  string `json:"type" validate:"required,oneof=transcript toggle"`
	Text  string `json:"text,omitempty" validate:"required_if=Type transcript,max=10000"`
	Final bool   `json:"final,omitempty"`
	ID    string `json:"id,omitempty" validate:"required_if=Type toggle"`
}
