package vp

import (
	"fmt"
	"strings"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/common/jwt"
	"github.com/pilacorp/go-ssi-sdk/credential/common/util"
	"github.com/pilacorp/go-ssi-sdk/credential/vc"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// JWTPresentation is a presentation carried as a compact JWT. The document
// field always holds the logical envelope; the token holds the signed wire
// form.
type JWTPresentation struct {
	document jsonmap.JSONMap
	verifier string
	nonce    string
	token    string
}

// NewJWTPresentation builds an unsigned token presentation from structured
// contents. Member credentials must be compact tokens.
func NewJWTPresentation(vpc PresentationContents) (*JWTPresentation, error) {
	m, err := serializePresentationContents(&vpc, vc.ProofKindToken)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize presentation contents: %w", err)
	}

	return &JWTPresentation{document: m, verifier: vpc.Verifier}, nil
}

// ParseJWTPresentation parses a compact token presentation.
func ParseJWTPresentation(rawJWT string) (*JWTPresentation, error) {
	rawJWT = strings.Trim(strings.TrimSpace(rawJWT), `"`)
	if !tokenPattern.MatchString(rawJWT) {
		return nil, fmt.Errorf("invalid JWT format")
	}

	claims, err := jwt.Claims(rawJWT)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	vpData, ok := claims["vp"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vp claim not found in JWT payload")
	}

	document := util.ShallowCopyObj(vpData)
	if iss, ok := claims["iss"].(string); ok && iss != "" {
		document["holder"] = iss
	}
	if jti, ok := claims["jti"].(string); ok && jti != "" {
		document["id"] = jti
	}

	p := &JWTPresentation{document: document, token: rawJWT}
	p.verifier = audienceClaim(claims["aud"])
	if nonce, ok := claims["nonce"].(string); ok {
		p.nonce = nonce
	}

	return p, nil
}

// AddProof signs the presentation as a compact token. The holder becomes
// both iss and sub; nonce, verifier and expiration map to the nonce, aud
// and exp claims.
func (j *JWTPresentation) AddProof(signer *kms.Signer, opts ...ProofOption) error {
	options := getProofOptions(opts...)

	holder, ok := j.document["holder"].(string)
	if !ok || holder == "" {
		return fmt.Errorf("%w: presentation has no holder", vc.ErrSigningFailed)
	}

	keyID := options.verificationMethod
	if keyID == "" {
		keyID = holder
	}

	_, vpClaim := util.SplitJSONObj(j.document, "id")

	claims := map[string]interface{}{
		"iss": holder,
		"sub": holder,
		"vp":  vpClaim,
	}
	if id, ok := j.document["id"].(string); ok && id != "" {
		claims["jti"] = id
	}
	if options.verifier != "" {
		claims["aud"] = options.verifier
		j.verifier = options.verifier
	}
	if options.nonce != "" {
		claims["nonce"] = options.nonce
		j.nonce = options.nonce
	}
	if options.expiration != nil {
		claims["exp"] = options.expiration.Unix()
	}

	tokenSigner, err := jwt.NewSigner(signer, keyID)
	if err != nil {
		return fmt.Errorf("%w: %s", vc.ErrSigningFailed, err)
	}

	token, err := tokenSigner.SignClaims(claims)
	if err != nil {
		return fmt.Errorf("%w: %s", vc.ErrSigningFailed, err)
	}

	j.token = token

	return nil
}

// Serialize returns the signed compact token.
func (j *JWTPresentation) Serialize() (string, error) {
	if j.token == "" {
		return "", fmt.Errorf("presentation must have proof before serialization")
	}

	return j.token, nil
}

// Contents returns the structured presentation data.
func (j *JWTPresentation) Contents() (PresentationContents, error) {
	contents, err := parsePresentationContents(j.document)
	if err != nil {
		return contents, err
	}

	contents.Verifier = j.verifier

	return contents, nil
}

// Kind reports the token proof encoding.
func (j *JWTPresentation) Kind() vc.ProofKind {
	return vc.ProofKindToken
}

// Document returns the logical envelope document.
func (j *JWTPresentation) Document() jsonmap.JSONMap {
	return j.document
}

// Nonce returns the nonce bound at signing, or the nonce claim of a parsed
// token.
func (j *JWTPresentation) Nonce() string {
	return j.nonce
}

// audienceClaim normalizes the aud claim, which may carry one value or a
// list.
func audienceClaim(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}

	return ""
}
