package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-ssi-sdk/credential/template"
)

func TestNewRegistryLoadsEmbeddedTemplates(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{"Europass", "VerifiableDiploma", "VerifiableId"}, registry.List())
}

func TestLoadEuropass(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	doc, err := registry.Load("Europass")
	require.NoError(t, err)

	types, ok := doc["type"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, types, "Europass")

	subject, ok := doc["credentialSubject"].(map[string]interface{})
	require.True(t, ok)

	achievement, ok := subject["learningAchievement"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Master of Science in Applied Mathematics", achievement["title"])

	opportunity, ok := subject["awardingOpportunity"].(map[string]interface{})
	require.True(t, ok)
	body, ok := opportunity["awardingBody"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Technische Universiteit Delft", body["preferredName"])
}

func TestLoadReturnsIndependentCopies(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	first, err := registry.Load("Europass")
	require.NoError(t, err)

	subject := first["credentialSubject"].(map[string]interface{})
	achievement := subject["learningAchievement"].(map[string]interface{})
	achievement["title"] = "tampered"
	first["issuer"] = "did:key:z6MkSomeone"

	second, err := registry.Load("Europass")
	require.NoError(t, err)

	subject = second["credentialSubject"].(map[string]interface{})
	achievement = subject["learningAchievement"].(map[string]interface{})
	assert.Equal(t, "Master of Science in Applied Mathematics", achievement["title"])
	assert.NotContains(t, second, "issuer")
}

func TestLoadUnknownTemplate(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	_, err = registry.Load("OpenBadge")
	require.ErrorIs(t, err, template.ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "OpenBadge")
}

func TestRegister(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	err = registry.Register(template.Template{
		Name:       "MembershipCard",
		Credential: []byte(`{"type":["VerifiableCredential","MembershipCard"],"credentialSubject":{"tier":"gold"}}`),
	})
	require.NoError(t, err)

	doc, err := registry.Load("MembershipCard")
	require.NoError(t, err)
	assert.Contains(t, registry.List(), "MembershipCard")

	subject := doc["credentialSubject"].(map[string]interface{})
	assert.Equal(t, "gold", subject["tier"])
}

func TestRegisterRejectsInvalidTemplates(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	err = registry.Register(template.Template{Credential: []byte(`{}`)})
	require.Error(t, err)

	err = registry.Register(template.Template{Name: "Broken"})
	require.Error(t, err)

	err = registry.Register(template.Template{Name: "Broken", Credential: []byte(`{not json`)})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	doc, err := registry.Load("Europass")
	require.NoError(t, err)

	doc["issuer"] = "did:ebsi:zvHWX359A3CvfJnCYaAiAde"
	doc["issuanceDate"] = "2025-03-14T09:26:53Z"
	subject := doc["credentialSubject"].(map[string]interface{})
	subject["id"] = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"

	require.NoError(t, registry.Validate("Europass", doc))

	delete(doc, "issuer")
	err = registry.Validate("Europass", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Europass")
}

func TestValidateUnknownTemplate(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	err = registry.Validate("OpenBadge", map[string]interface{}{})
	require.ErrorIs(t, err, template.ErrTemplateNotFound)
}

func TestValidateWithoutSchemaAcceptsAnything(t *testing.T) {
	registry, err := template.NewRegistry()
	require.NoError(t, err)

	err = registry.Register(template.Template{
		Name:       "Freeform",
		Credential: []byte(`{"type":["VerifiableCredential"]}`),
	})
	require.NoError(t, err)

	require.NoError(t, registry.Validate("Freeform", map[string]interface{}{"anything": true}))
}
