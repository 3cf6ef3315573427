// Package docs provides the OpenAPI documentation.
//
// stdcheck API
//
//	@title			stdcheck API
//	@version		1.0
//	@description	Tensile test report extraction and national-standard compliance checks.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/stdcheck
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:7861
//	@BasePath	/
//
//	@schemes	http https
package docs

import _ "embed"

//go:generate swag init -g ../cmd/stdcheck/serve.go -o ./swagger --parseDependency --parseInternal

// SwaggerJSON is the OpenAPI 2.0 document served at /swagger.json.
//
//go:embed swagger/swagger.json
var SwaggerJSON []byte
