package vc

import (
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
	"github.com/pilacorp/go-ssi-sdk/credential/common/util"
)

// serializeCredentialContents serializes CredentialContents into a JSON
// document with the W3C 1.1 member names.
func serializeCredentialContents(vcc *CredentialContents) (jsonmap.JSONMap, error) {
	if vcc == nil {
		return nil, fmt.Errorf("credential contents is nil")
	}

	vcJSON := make(jsonmap.JSONMap)
	if len(vcc.Context) > 0 {
		validatedContext, err := util.SerializeContexts(vcc.Context)
		if err != nil {
			return nil, fmt.Errorf("invalid @context: %w", err)
		}
		vcJSON["@context"] = validatedContext
	}
	if vcc.ID != "" {
		vcJSON["id"] = vcc.ID
	}
	if len(vcc.Types) > 0 {
		vcJSON["type"] = util.SerializeTypes(vcc.Types)
	}
	if len(vcc.Subject) > 0 {
		vcJSON["credentialSubject"] = serializeSubjects(vcc.Subject)
	}
	if vcc.Issuer != "" {
		vcJSON["issuer"] = vcc.Issuer
	}
	if len(vcc.Schemas) > 0 {
		vcJSON["credentialSchema"] = serializeSchemas(vcc.Schemas)
	}
	if len(vcc.Status) > 0 {
		vcJSON["credentialStatus"] = serializeStatuses(vcc.Status)
	}
	if !vcc.IssuanceDate.IsZero() {
		vcJSON["issuanceDate"] = vcc.IssuanceDate.UTC().Format(time.RFC3339)
	}
	if vcc.ExpirationDate != nil && !vcc.ExpirationDate.IsZero() {
		vcJSON["expirationDate"] = vcc.ExpirationDate.UTC().Format(time.RFC3339)
	}

	return vcJSON, nil
}

// serializeSubjects converts subjects to JSON, unwrapping a single entry.
func serializeSubjects(subjects []Subject) interface{} {
	if len(subjects) == 0 {
		return nil
	}
	if len(subjects) == 1 {
		return serializeSubject(subjects[0])
	}

	return util.MapSlice(subjects, serializeSubject)
}

func serializeSubject(subject Subject) jsonmap.JSONMap {
	jsonObj := util.ShallowCopyObj(subject.CustomFields)
	if subject.ID != "" {
		jsonObj["id"] = subject.ID
	}

	return jsonObj
}

// serializeSchemas converts schemas to JSON, unwrapping a single entry.
func serializeSchemas(schemas []Schema) interface{} {
	if len(schemas) == 0 {
		return nil
	}
	if len(schemas) == 1 {
		return serializeSchema(schemas[0])
	}

	return util.MapSlice(schemas, serializeSchema)
}

func serializeSchema(schema Schema) jsonmap.JSONMap {
	return jsonmap.JSONMap{
		"id":   schema.ID,
		"type": schema.Type,
	}
}

// serializeStatuses converts status entries to JSON, unwrapping a single entry.
func serializeStatuses(statuses []Status) interface{} {
	if len(statuses) == 0 {
		return nil
	}
	if len(statuses) == 1 {
		return serializeStatus(statuses[0])
	}

	return util.MapSlice(statuses, serializeStatus)
}

func serializeStatus(status Status) jsonmap.JSONMap {
	result := make(jsonmap.JSONMap)
	if status.ID != "" {
		result["id"] = status.ID
	}
	if status.Type != "" {
		result["type"] = status.Type
	}
	if status.StatusPurpose != "" {
		result["statusPurpose"] = status.StatusPurpose
	}
	if status.StatusListIndex != "" {
		result["statusListIndex"] = status.StatusListIndex
	}
	if status.StatusListCredential != "" {
		result["statusListCredential"] = status.StatusListCredential
	}

	return result
}

// parseCredentialContents extracts structured contents from a credential
// JSON document.
func parseCredentialContents(m jsonmap.JSONMap) (CredentialContents, error) {
	var contents CredentialContents

	parsers := []func(jsonmap.JSONMap, *CredentialContents) error{
		parseContext,
		parseID,
		parseTypes,
		parseIssuer,
		parseDates,
		parseSubject,
		parseSchema,
		parseStatus,
	}
	for _, parse := range parsers {
		if err := parse(m, &contents); err != nil {
			return CredentialContents{}, err
		}
	}

	return contents, nil
}

func parseContext(c jsonmap.JSONMap, contents *CredentialContents) error {
	switch context := c["@context"].(type) {
	case nil:
	case string:
		contents.Context = append(contents.Context, context)
	case []interface{}:
		for _, ctx := range context {
			switch v := ctx.(type) {
			case string, map[string]interface{}:
				contents.Context = append(contents.Context, v)
			default:
				return fmt.Errorf("unsupported context type: %T", v)
			}
		}
	case map[string]interface{}:
		contents.Context = append(contents.Context, context)
	default:
		return fmt.Errorf("unsupported context type: %T", context)
	}

	return nil
}

func parseID(c jsonmap.JSONMap, contents *CredentialContents) error {
	if id, ok := c["id"].(string); ok {
		contents.ID = id
	}

	return nil
}

func parseTypes(c jsonmap.JSONMap, contents *CredentialContents) error {
	switch v := c["type"].(type) {
	case nil:
	case string:
		contents.Types = append(contents.Types, v)
	case []interface{}:
		for _, t := range v {
			if typeStr, ok := t.(string); ok {
				contents.Types = append(contents.Types, typeStr)
			}
		}
	default:
		return fmt.Errorf("unsupported type field: %T", v)
	}

	return nil
}

func parseIssuer(c jsonmap.JSONMap, contents *CredentialContents) error {
	switch issuer := c["issuer"].(type) {
	case nil:
	case string:
		contents.Issuer = issuer
	case map[string]interface{}:
		if id, ok := issuer["id"].(string); ok {
			contents.Issuer = id
		}
	default:
		return fmt.Errorf("unsupported issuer field: %T", issuer)
	}

	return nil
}

func parseDates(c jsonmap.JSONMap, contents *CredentialContents) error {
	if issuanceDate, ok := c["issuanceDate"].(string); ok {
		t, err := time.Parse(time.RFC3339, issuanceDate)
		if err != nil {
			return fmt.Errorf("failed to parse issuanceDate: %w", err)
		}
		contents.IssuanceDate = t
	}
	if expirationDate, ok := c["expirationDate"].(string); ok {
		t, err := time.Parse(time.RFC3339, expirationDate)
		if err != nil {
			return fmt.Errorf("failed to parse expirationDate: %w", err)
		}
		contents.ExpirationDate = &t
	}

	return nil
}

func parseSubject(c jsonmap.JSONMap, contents *CredentialContents) error {
	subjectRaw := c["credentialSubject"]
	if subjectRaw == nil {
		return nil
	}

	switch subject := subjectRaw.(type) {
	case string:
		contents.Subject = []Subject{{ID: subject}}
	case map[string]interface{}:
		parsed, err := subjectFromJSON(subject)
		if err != nil {
			return fmt.Errorf("failed to parse subject: %w", err)
		}
		contents.Subject = []Subject{parsed}
	case []interface{}:
		subjects := make([]Subject, 0, len(subject))
		for _, raw := range subject {
			sub, ok := raw.(map[string]interface{})
			if !ok {
				return fmt.Errorf("unsupported subject format: %T", raw)
			}
			parsed, err := subjectFromJSON(sub)
			if err != nil {
				return fmt.Errorf("failed to parse subjects array: %w", err)
			}
			subjects = append(subjects, parsed)
		}
		contents.Subject = subjects
	default:
		return fmt.Errorf("unsupported subject format: %T", subject)
	}

	return nil
}

func subjectFromJSON(subjectObj jsonmap.JSONMap) (Subject, error) {
	flds, rest := util.SplitJSONObj(subjectObj, "id")
	id, err := parseStringField(flds, "id")
	if err != nil {
		return Subject{}, fmt.Errorf("failed to parse subject id: %w", err)
	}

	return Subject{ID: id, CustomFields: rest}, nil
}

func parseSchema(c jsonmap.JSONMap, contents *CredentialContents) error {
	schemaRaw := c["credentialSchema"]
	if schemaRaw == nil {
		return nil
	}

	switch schema := schemaRaw.(type) {
	case map[string]interface{}, string:
		parsed, err := parseSchemaID(schema)
		if err != nil {
			return fmt.Errorf("failed to parse schema: %w", err)
		}
		contents.Schemas = append(contents.Schemas, parsed)
	case []interface{}:
		for _, raw := range schema {
			parsed, err := parseSchemaID(raw)
			if err != nil {
				return fmt.Errorf("failed to parse schema: %w", err)
			}
			contents.Schemas = append(contents.Schemas, parsed)
		}
	default:
		return fmt.Errorf("unsupported schema format: %T", schema)
	}

	return nil
}

func parseSchemaID(value interface{}) (Schema, error) {
	var schema Schema
	switch v := value.(type) {
	case string:
		schema.ID = v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			schema.ID = id
		}
		if t, ok := v["type"].(string); ok {
			schema.Type = t
		}
	default:
		return schema, fmt.Errorf("invalid schema format: %T", v)
	}

	return schema, nil
}

func parseStatus(c jsonmap.JSONMap, contents *CredentialContents) error {
	statusRaw := c["credentialStatus"]
	if statusRaw == nil {
		return nil
	}

	switch status := statusRaw.(type) {
	case map[string]interface{}:
		contents.Status = append(contents.Status, parseStatusEntry(status))
	case []interface{}:
		for _, raw := range status {
			statusMap, ok := raw.(map[string]interface{})
			if !ok {
				return fmt.Errorf("unsupported status format: %T", raw)
			}
			contents.Status = append(contents.Status, parseStatusEntry(statusMap))
		}
	default:
		return fmt.Errorf("unsupported status format: %T", status)
	}

	return nil
}

func parseStatusEntry(status map[string]interface{}) Status {
	s := Status{}
	if id, ok := status["id"].(string); ok {
		s.ID = id
	}
	if t, ok := status["type"].(string); ok {
		s.Type = t
	}
	if purpose, ok := status["statusPurpose"].(string); ok {
		s.StatusPurpose = purpose
	}
	if index, ok := status["statusListIndex"].(string); ok {
		s.StatusListIndex = index
	}
	if cred, ok := status["statusListCredential"].(string); ok {
		s.StatusListCredential = cred
	}

	return s
}

func parseStringField(obj jsonmap.JSONMap, fieldName string) (string, error) {
	if value, ok := obj[fieldName]; ok {
		if str, ok := value.(string); ok {
			return str, nil
		}

		return "", fmt.Errorf("field %q must be a string, got %T", fieldName, value)
	}

	return "", nil
}

// validateCredential validates the document against the schemas referenced
// by its credentialSchema entries. Entries without an id are skipped.
func validateCredential(m jsonmap.JSONMap) error {
	var contents CredentialContents
	if err := parseSchema(m, &contents); err != nil {
		return err
	}

	for _, schema := range contents.Schemas {
		if schema.ID == "" {
			continue
		}

		schemaLoader := gojsonschema.NewReferenceLoader(schema.ID)
		credentialLoader := gojsonschema.NewGoLoader(m)

		result, err := gojsonschema.Validate(schemaLoader, credentialLoader)
		if err != nil {
			return fmt.Errorf("failed to validate schema %s: %w", schema.ID, err)
		}
		if !result.Valid() {
			return fmt.Errorf("credential does not conform to schema %s: %v", schema.ID, result.Errors())
		}
	}

	return nil
}
