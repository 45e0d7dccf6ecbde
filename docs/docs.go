// Package docs holds the OpenAPI document registered with swag.
// Regenerate with: swag init -g internal/transport/http/handlers.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "termsOfService": "http://swagger.io/terms/",
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Checks if the service is up and running",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health Check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/login": {
            "post": {
                "description": "Authenticates a user and sets a session cookie",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "User Login",
                "parameters": [
                    {"description": "Login Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.LoginRequest"}},
                    {"type": "string", "description": "Local path to return to after login", "name": "intended-url", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.LoginResponse"}},
                    "400": {"description": "Bad Request"},
                    "401": {"description": "Unauthorized"},
                    "429": {"description": "Too Many Requests"}
                }
            }
        },
        "/logout": {
            "post": {
                "description": "Revokes the session and clears the session cookie",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "User Logout",
                "parameters": [
                    {"type": "string", "description": "set to all to end every session of the user", "name": "scope", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Current Principal",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.MeResponse"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/admin/tenants": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Admin Tenant List",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/tenant.Tenant"}}},
                    "302": {"description": "Found"}
                }
            }
        },
        "/admin/power-bi/{dashboard}/preview": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Admin Dashboard Preview",
                "parameters": [{"type": "integer", "description": "Dashboard ID", "name": "dashboard", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.EmbedResponse"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/admin/power-bi/proxy/{token}": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["text/html"],
                "tags": ["Admin"],
                "summary": "Admin Relay",
                "parameters": [{"type": "string", "description": "Embed token", "name": "token", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/{tenant}": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Tenant Home",
                "parameters": [{"type": "string", "description": "Tenant slug", "name": "tenant", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.TenantHomeResponse"}},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/{tenant}/power-bi": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "List Tenant Dashboards",
                "parameters": [{"type": "string", "description": "Tenant slug", "name": "tenant", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/http.TenantHomeResponse"}}}
            }
        },
        "/{tenant}/power-bi/direct": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Direct Dashboard",
                "parameters": [{"type": "string", "description": "Tenant slug", "name": "tenant", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.EmbedResponse"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/{tenant}/power-bi/{dashboard}": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Show Dashboard",
                "parameters": [
                    {"type": "string", "description": "Tenant slug", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "description": "Dashboard ID", "name": "dashboard", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.EmbedResponse"}},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/{tenant}/power-bi/{dashboard}/fullscreen": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Fullscreen Dashboard",
                "parameters": [
                    {"type": "string", "description": "Tenant slug", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "description": "Dashboard ID", "name": "dashboard", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/http.EmbedResponse"}}}
            }
        },
        "/{tenant}/power-bi/proxy/{token}": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["text/html"],
                "tags": ["Tenant"],
                "summary": "Tenant Relay",
                "parameters": [
                    {"type": "string", "description": "Tenant slug", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Embed token", "name": "token", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "502": {"description": "Bad Gateway"}}
            }
        }
    },
    "definitions": {
        "dashboard.Dashboard": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "title": {"type": "string"},
                "report_id": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "thumbnail": {"type": "string"},
                "is_active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "tenant.Tenant": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "slug": {"type": "string"},
                "is_active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "http.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "http.PrincipalResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"},
                "role": {"type": "string"},
                "primary_tenant_id": {"type": "string"},
                "additional_tenant_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "http.LoginResponse": {
            "type": "object",
            "properties": {
                "redirect": {"type": "string"},
                "user": {"$ref": "#/definitions/http.PrincipalResponse"}
            }
        },
        "http.MeResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/http.PrincipalResponse"},
                "tenants": {"type": "array", "items": {"$ref": "#/definitions/tenant.Tenant"}},
                "home": {"type": "string"}
            }
        },
        "http.TenantHomeResponse": {
            "type": "object",
            "properties": {
                "tenant": {"$ref": "#/definitions/tenant.Tenant"},
                "dashboards": {"type": "array", "items": {"$ref": "#/definitions/dashboard.Dashboard"}}
            }
        },
        "http.EmbedResponse": {
            "type": "object",
            "properties": {
                "dashboard": {"$ref": "#/definitions/dashboard.Dashboard"},
                "proxy_url": {"type": "string"},
                "expires_at": {"type": "string"},
                "fullscreen": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "CookieAuth": {
            "type": "apiKey",
            "name": "embedgate_session",
            "in": "cookie"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "embedgate API",
	Description:      "Tenant-isolated access to embedded reports",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
