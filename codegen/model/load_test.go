package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetsAPI = `{
  "version": "2.0",
  "metadata": {
    "apiVersion": "2024-03-01",
    "endpointPrefix": "widgets",
    "jsonVersion": "1.1",
    "protocol": "json",
    "serviceAbbreviation": "Widgets",
    "serviceFullName": "Acme Widgets",
    "serviceId": "Widgets",
    "signatureVersion": "v4",
    "targetPrefix": "AcmeWidgets",
    "uid": "widgets-2024-03-01"
  },
  "operations": {
    "CreateWidget": {
      "name": "CreateWidget",
      "http": {"method": "POST", "requestUri": "/"},
      "input": {"shape": "CreateWidgetRequest"},
      "output": {"shape": "CreateWidgetResponse"},
      "errors": [
        {"shape": "WidgetAlreadyExistsException"}
      ]
    },
    "ListWidgets": {
      "http": {"method": "POST", "requestUri": "/"},
      "input": {"shape": "ListWidgetsRequest"},
      "output": {"shape": "ListWidgetsResponse"}
    }
  },
  "shapes": {
    "CreateWidgetRequest": {
      "type": "structure",
      "required": ["Name"],
      "members": {
        "Name": {"shape": "WidgetName"},
        "Tags": {"shape": "TagMap"},
        "Count": {"shape": "Integer"},
        "Active": {"shape": "Boolean"}
      }
    },
    "CreateWidgetResponse": {
      "type": "structure",
      "members": {
        "Widget": {"shape": "Widget"}
      }
    },
    "ListWidgetsRequest": {
      "type": "structure",
      "members": {
        "NextToken": {"shape": "WidgetName"},
        "MaxResults": {"shape": "Integer"}
      }
    },
    "ListWidgetsResponse": {
      "type": "structure",
      "members": {
        "Widgets": {"shape": "WidgetList"},
        "NextToken": {"shape": "WidgetName"}
      }
    },
    "Widget": {
      "type": "structure",
      "members": {
        "Name": {"shape": "WidgetName"},
        "CreatedAt": {"shape": "Timestamp"}
      }
    },
    "WidgetAlreadyExistsException": {
      "type": "structure",
      "exception": true,
      "error": {"httpStatusCode": 409, "senderFault": true},
      "members": {
        "message": {"shape": "WidgetName"}
      }
    },
    "WidgetList": {
      "type": "list",
      "member": {"shape": "Widget"}
    },
    "TagMap": {
      "type": "map",
      "key": {"shape": "WidgetName"},
      "value": {"shape": "WidgetName"}
    },
    "WidgetName": {"type": "string"},
    "Integer": {"type": "integer"},
    "Boolean": {"type": "boolean"},
    "Timestamp": {"type": "timestamp"}
  }
}`

const widgetsPaginators = `{
  "pagination": {
    "ListWidgets": {
      "input_token": "NextToken",
      "output_token": "NextToken",
      "limit_key": "MaxResults",
      "result_key": "Widgets"
    }
  }
}`

const widgetsCustomization = `deprecatedShapes:
  - WidgetAlreadyExistsException
renameShapes:
  Widget: Gadget
`

// writeServiceDir lays out a service model directory for loading tests.
func writeServiceDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "widgets")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadAPI(t *testing.T) {
	t.Run("parses metadata and operations", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{"api.json": widgetsAPI})

		api, err := LoadAPI(filepath.Join(dir, "api.json"))
		require.NoError(t, err)

		assert.Equal(t, "Widgets", api.Metadata.ServiceID)
		assert.Equal(t, "json", api.Metadata.Protocol)
		assert.Equal(t, "AcmeWidgets", api.Metadata.TargetPrefix)
		assert.Equal(t, 2, api.Operations.Len())
		require.NotNil(t, api.Operation("CreateWidget"))
		assert.Equal(t, "POST", api.Operation("CreateWidget").HTTP.Method)
	})

	t.Run("preserves member declaration order", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{"api.json": widgetsAPI})

		api, err := LoadAPI(filepath.Join(dir, "api.json"))
		require.NoError(t, err)

		req := api.Shape("CreateWidgetRequest")
		require.NotNil(t, req)
		assert.Equal(t, []string{"Name", "Tags", "Count", "Active"}, req.Members.Keys())
	})

	t.Run("fills operation name from its key", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{"api.json": widgetsAPI})

		api, err := LoadAPI(filepath.Join(dir, "api.json"))
		require.NoError(t, err)

		op := api.Operation("ListWidgets")
		require.NotNil(t, op)
		assert.Equal(t, "ListWidgets", op.Name)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadAPI(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})

	t.Run("malformed json errors", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{"api.json": `{"metadata": [}`})
		_, err := LoadAPI(filepath.Join(dir, "api.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing service model")
	})
}

func TestLoadService(t *testing.T) {
	t.Run("bundles api, paginators and customization", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{
			"api.json":           widgetsAPI,
			"paginators.json":    widgetsPaginators,
			"customization.yaml": widgetsCustomization,
		})

		svc, err := LoadService(dir)
		require.NoError(t, err)

		assert.Equal(t, "widgets", svc.Name)
		require.NotNil(t, svc.Paginators)
		def, ok := svc.Paginators.Get("ListWidgets")
		require.True(t, ok)
		assert.Equal(t, "NextToken", def.InputToken.First())
		assert.True(t, svc.Customization.ShapeDeprecated("WidgetAlreadyExistsException"))
		assert.Equal(t, "Gadget", svc.Customization.RenamedShape("Widget"))
	})

	t.Run("side files are optional", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{"api.json": widgetsAPI})

		svc, err := LoadService(dir)
		require.NoError(t, err)
		assert.Nil(t, svc.Paginators)
		assert.Nil(t, svc.Customization)
	})

	t.Run("accepts published file names", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{
			"api-2.json":        widgetsAPI,
			"paginators-1.json": widgetsPaginators,
		})

		svc, err := LoadService(dir)
		require.NoError(t, err)
		require.NotNil(t, svc.Paginators)
	})

	t.Run("loads endpoint rules when present", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{
			"api.json":               widgetsAPI,
			"endpoint-rule-set.json": `{"version": "1.0", "parameters": {}, "rules": []}`,
		})

		svc, err := LoadService(dir)
		require.NoError(t, err)
		require.NotNil(t, svc.API.EndpointRuleSet)
		assert.Equal(t, "1.0", svc.API.EndpointRuleSet.GetString("version"))
	})

	t.Run("customization can skip endpoint rules", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{
			"api.json":               widgetsAPI,
			"endpoint-rule-set.json": `{"version": "1.0"}`,
			"customization.yaml":     "skipEndpointRuleSet: true\n",
		})

		svc, err := LoadService(dir)
		require.NoError(t, err)
		assert.Nil(t, svc.API.EndpointRuleSet)
	})

	t.Run("missing api file errors", func(t *testing.T) {
		dir := writeServiceDir(t, map[string]string{"paginators.json": widgetsPaginators})
		_, err := LoadService(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no api model file")
	})

	t.Run("invalid model yields no service", func(t *testing.T) {
		broken := `{
		  "metadata": {"serviceId": "Broken", "protocol": "json", "serviceFullName": "Broken"},
		  "operations": {
		    "DoThing": {"http": {"method": "POST", "requestUri": "/"}, "input": {"shape": "Missing"}}
		  },
		  "shapes": {}
		}`
		dir := writeServiceDir(t, map[string]string{"api.json": broken})

		svc, err := LoadService(dir)
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.True(t, IsResolutionError(err))
	})
}
