// Package swagger registers the OpenAPI document served by the dev-mode
// Swagger UI. Regenerate with `swag init -g cmd/flowforge/main.go -o api/swagger`.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register a new user",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["auth"],
                "summary": "Revoke a refresh token",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/chat/diagram": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["chat"],
                "summary": "Diagram chat",
                "description": "Streams an AI diagram conversation as server-sent events. Guests are admitted under the guest quota.",
                "responses": {
                    "200": {"description": "SSE stream"},
                    "400": {"description": "Bad Request"},
                    "429": {"description": "Quota Exceeded"},
                    "503": {"description": "Provider Not Configured"}
                }
            }
        },
        "/usage": {
            "get": {
                "produces": ["application/json"],
                "tags": ["usage"],
                "summary": "Usage stats",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/diagrams": {
            "get": {
                "produces": ["application/json"],
                "tags": ["diagrams"],
                "summary": "List diagrams",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["diagrams"],
                "summary": "Create diagram",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/diagrams/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["diagrams"],
                "summary": "Get diagram",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["diagrams"],
                "summary": "Update diagram",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            },
            "delete": {
                "tags": ["diagrams"],
                "summary": "Delete diagram",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/ws/events": {
            "get": {
                "tags": ["ws"],
                "summary": "Event stream",
                "description": "Upgrades to a WebSocket that pushes the caller's own chat and diagram events.",
                "parameters": [{"type": "string", "name": "token", "in": "query", "required": true}],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized"}
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "FlowForge API",
	Description:      "AI-assisted diagram generation API: streaming chat relay, quotas, usage and diagram storage.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
