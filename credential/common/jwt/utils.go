package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

func splitToken(tokenString string) ([]string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format")
	}

	return parts, nil
}

func decodeHeader(segment string) (map[string]interface{}, error) {
	headerBytes, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	var header map[string]interface{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	return header, nil
}

// Claims decodes the payload segment without verifying the signature.
func Claims(tokenString string) (map[string]interface{}, error) {
	parts, err := splitToken(tokenString)
	if err != nil {
		return nil, err
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	return claims, nil
}

// DocumentFromToken extracts an embedded document claim, such as vc or vp,
// from the token payload.
func DocumentFromToken(tokenString string, claimKey string) (map[string]interface{}, error) {
	claims, err := Claims(tokenString)
	if err != nil {
		return nil, err
	}

	documentData, ok := claims[claimKey]
	if !ok {
		return nil, fmt.Errorf("claim %s not found in JWT", claimKey)
	}

	document, ok := documentData.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("claim %s is not a JSON object", claimKey)
	}

	return document, nil
}
