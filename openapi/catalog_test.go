package openapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/blnkoff/sensei"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const petstore = `
openapi: 3.0.3
info:
  title: Petstore
  version: "1.0"
paths:
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        required: true
        schema: {type: integer}
    get:
      operationId: getPet
      summary: Get pet
      parameters:
        - name: expand
          in: query
          schema: {type: string}
        - name: X-Api-Key
          in: header
          required: true
          schema: {type: string}
      responses:
        "200": {description: ok}
    patch:
      parameters:
        - name: session
          in: cookie
          schema: {type: string}
      requestBody:
        content:
          application/json:
            schema:
              allOf:
                - type: object
                  properties:
                    name: {type: string}
                - type: object
                  required: [tag]
                  properties:
                    tag: {type: string}
      responses:
        "204": {description: updated}
`

func TestLoad(t *testing.T) {
	cat, err := Load(context.Background(), []byte(petstore))
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, []string{"PATCH /pets/{petId}", "getPet"}, cat.OperationIDs())

	get, ok := cat.Endpoint("getPet")
	require.True(t, ok)
	assert.Equal(t, http.MethodGet, get.Method())
	assert.Equal(t, "/pets/{petId}", get.Path())
	assert.Equal(t, "Get pet failed", get.ErrorMessage())

	kinds := map[string]sensei.ParamKind{}
	for _, p := range get.Params() {
		kinds[p.Name] = p.Kind
	}
	assert.Equal(t, map[string]sensei.ParamKind{
		"petId":     sensei.KindPath,
		"expand":    sensei.KindQuery,
		"X-Api-Key": sensei.KindHeader,
	}, kinds)
}

func TestCatalog_Args(t *testing.T) {
	cat, err := Load(context.Background(), []byte(petstore))
	require.NoError(t, err)

	get, _ := cat.Endpoint("getPet")
	args, err := get.Args(sensei.Values{"petId": 7, "expand": "owner", "X-Api-Key": "k"})
	require.NoError(t, err)
	assert.Equal(t, "/pets/7", args.URL)
	assert.Equal(t, map[string]any{"expand": "owner"}, args.Query)
	assert.Equal(t, map[string]any{"X-Api-Key": "k"}, args.Headers, "document names are sent as written")

	_, err = get.Args(sensei.Values{"petId": 7})
	assert.True(t, sensei.IsValidationError(err), "missing required header must fail")

	patch, ok := cat.Endpoint("PATCH /pets/{petId}")
	require.True(t, ok)
	args, err = patch.Args(sensei.Values{"petId": 1, "name": "Rex", "tag": "dog", "session": "s"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Rex", "tag": "dog"}, args.Body)
	assert.Equal(t, map[string]any{"session": "s"}, args.Cookies)

	_, err = patch.Args(sensei.Values{"petId": 1, "name": "Rex"})
	assert.True(t, sensei.IsValidationError(err), "tag is required through allOf")
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(context.Background(), []byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"))
	assert.Error(t, err)

	_, err = Load(context.Background(), []byte("not: [valid"))
	assert.Error(t, err)
}

func TestFromDocument_Options(t *testing.T) {
	cat, err := Load(context.Background(), []byte(petstore), sensei.WithErrorMessage("pets api"))
	require.NoError(t, err)

	get, _ := cat.Endpoint("getPet")
	// caller options are applied after the summary-derived message
	assert.Equal(t, "pets api", get.ErrorMessage())
}
