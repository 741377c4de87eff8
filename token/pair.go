package token

// Origin records how a token pair was obtained.
type Origin string

const (
	OriginLogin Origin = "login"
	OriginGuest Origin = "guest"
)

// Pair holds the access/refresh token pair for a dashboard session. A pair is
// either fully present or fully absent - an absent pair means the caller is
// operating in guest/anonymous mode.
type Pair struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Empty reports whether no credentials are present.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}
