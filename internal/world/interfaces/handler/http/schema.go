package http

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/command.schema.json
var commandSchemaRaw []byte

const commandSchemaURL = "command.schema.json"

var (
	commandSchemaOnce sync.Once
	commandSchema     *jsonschema.Schema
	commandSchemaErr  error
)

// CommandSchema 编译并缓存指令负载的 JSON Schema。
func CommandSchema() (*jsonschema.Schema, error) {
	commandSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		if err := c.AddResource(commandSchemaURL, bytes.NewReader(commandSchemaRaw)); err != nil {
			commandSchemaErr = fmt.Errorf("add command schema: %w", err)
			return
		}
		commandSchema, commandSchemaErr = c.Compile(commandSchemaURL)
	})
	return commandSchema, commandSchemaErr
}
