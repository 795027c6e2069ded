package vc

import (
	"fmt"
	"strings"
	"time"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/common/jwt"
	"github.com/pilacorp/go-ssi-sdk/credential/common/util"
	"github.com/pilacorp/go-ssi-sdk/kms"
)

// JWTCredential is a credential carried as a compact JWT. The document field
// always holds the logical credential; the token holds the signed wire form.
type JWTCredential struct {
	document jsonmap.JSONMap
	token    string
}

// NewJWTCredential builds an unsigned token credential from structured
// contents.
func NewJWTCredential(vcc CredentialContents, opts ...CredentialOpt) (*JWTCredential, error) {
	options := getOptions(opts...)

	m, err := serializeCredentialContents(&vcc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize credential contents: %w", err)
	}

	if options.validateSchema {
		if err := validateCredential(m); err != nil {
			return nil, fmt.Errorf("failed to validate credential: %w", err)
		}
	}

	return &JWTCredential{document: m}, nil
}

// ParseJWTCredential parses a compact token credential, reversing the claim
// mapping into a logical credential document.
func ParseJWTCredential(rawJWT string, opts ...CredentialOpt) (*JWTCredential, error) {
	rawJWT = strings.Trim(strings.TrimSpace(rawJWT), `"`)
	if !tokenPattern.MatchString(rawJWT) {
		return nil, fmt.Errorf("invalid JWT format")
	}

	options := getOptions(opts...)

	claims, err := jwt.Claims(rawJWT)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	vcData, ok := claims["vc"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vc claim not found in JWT payload")
	}

	document := documentFromClaims(claims, vcData)

	if options.validateSchema {
		if err := validateCredential(document); err != nil {
			return nil, fmt.Errorf("failed to validate credential: %w", err)
		}
	}

	return &JWTCredential{document: document, token: rawJWT}, nil
}

// AddProof signs the credential as a compact token. The kid header carries
// the explicit verification method, or the bare issuer DID when none was
// configured.
func (j *JWTCredential) AddProof(signer *kms.Signer, opts ...ProofOption) error {
	options := getProofOptions(opts...)

	contents, err := j.Contents()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSigningFailed, err)
	}
	if contents.Issuer == "" {
		return fmt.Errorf("%w: credential has no issuer", ErrSigningFailed)
	}

	keyID := options.verificationMethod
	if keyID == "" {
		keyID = contents.Issuer
	}

	tokenSigner, err := jwt.NewSigner(signer, keyID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSigningFailed, err)
	}

	token, err := tokenSigner.SignClaims(claimsFromDocument(contents, j.document))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSigningFailed, err)
	}

	j.token = token

	return nil
}

// Serialize returns the signed compact token.
func (j *JWTCredential) Serialize() (string, error) {
	if j.token == "" {
		return "", fmt.Errorf("credential must have proof before serialization")
	}

	return j.token, nil
}

// Contents returns the structured credential data.
func (j *JWTCredential) Contents() (CredentialContents, error) {
	return parseCredentialContents(j.document)
}

// Kind reports the token proof encoding.
func (j *JWTCredential) Kind() ProofKind {
	return ProofKindToken
}

// Document returns the logical credential document.
func (j *JWTCredential) Document() jsonmap.JSONMap {
	return j.document
}

// claimsFromDocument maps the credential onto registered JWT claims. The vc
// claim is the document minus the members the registered claims carry,
// including the nested subject id.
func claimsFromDocument(contents CredentialContents, document jsonmap.JSONMap) map[string]interface{} {
	_, vcClaim := util.SplitJSONObj(document, "id", "issuer", "issuanceDate", "expirationDate")

	switch subject := vcClaim["credentialSubject"].(type) {
	case map[string]interface{}:
		_, stripped := util.SplitJSONObj(subject, "id")
		vcClaim["credentialSubject"] = stripped
	case []interface{}:
		out := make([]interface{}, 0, len(subject))
		for _, raw := range subject {
			if m, ok := raw.(map[string]interface{}); ok {
				_, stripped := util.SplitJSONObj(m, "id")
				out = append(out, stripped)
				continue
			}
			out = append(out, raw)
		}
		vcClaim["credentialSubject"] = out
	}

	claims := map[string]interface{}{
		"iss": contents.Issuer,
		"vc":  vcClaim,
	}
	if len(contents.Subject) > 0 && contents.Subject[0].ID != "" {
		claims["sub"] = contents.Subject[0].ID
	}
	if contents.ID != "" {
		claims["jti"] = contents.ID
	}
	if !contents.IssuanceDate.IsZero() {
		claims["iat"] = contents.IssuanceDate.Unix()
		claims["nbf"] = contents.IssuanceDate.Unix()
	}
	if contents.ExpirationDate != nil && !contents.ExpirationDate.IsZero() {
		claims["exp"] = contents.ExpirationDate.Unix()
	}

	return claims
}

// documentFromClaims reverses the claim mapping into a logical credential
// document.
func documentFromClaims(claims map[string]interface{}, vcData map[string]interface{}) jsonmap.JSONMap {
	document := util.ShallowCopyObj(vcData)

	if iss, ok := claims["iss"].(string); ok && iss != "" {
		document["issuer"] = iss
	}
	if jti, ok := claims["jti"].(string); ok && jti != "" {
		document["id"] = jti
	}
	if issued, ok := claimTime(claims["nbf"]); ok {
		document["issuanceDate"] = issued.Format(time.RFC3339)
	} else if issued, ok := claimTime(claims["iat"]); ok {
		document["issuanceDate"] = issued.Format(time.RFC3339)
	}
	if expires, ok := claimTime(claims["exp"]); ok {
		document["expirationDate"] = expires.Format(time.RFC3339)
	}

	if sub, ok := claims["sub"].(string); ok && sub != "" {
		restoreSubjectID(document, sub)
	}

	return document
}

// restoreSubjectID reattaches the sub claim to the first credential subject.
func restoreSubjectID(document jsonmap.JSONMap, sub string) {
	switch subject := document["credentialSubject"].(type) {
	case nil:
		document["credentialSubject"] = map[string]interface{}{"id": sub}
	case map[string]interface{}:
		restored := util.ShallowCopyObj(subject)
		restored["id"] = sub
		document["credentialSubject"] = restored
	case []interface{}:
		if len(subject) == 0 {
			return
		}
		if first, ok := subject[0].(map[string]interface{}); ok {
			restored := util.ShallowCopyObj(first)
			restored["id"] = sub
			out := append([]interface{}{restored}, subject[1:]...)
			document["credentialSubject"] = out
		}
	}
}

func claimTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
