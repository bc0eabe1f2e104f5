// Package docs holds the OpenAPI document served by gin-swagger. It mirrors
// the godoc annotations on the handlers in internal/http/handlers.
package docs

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
        "/": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["System"],
                "summary": "Root probe",
                "operationId": "root",
                "responses": {
                    "200": {"description": "Root!", "schema": {"type": "string"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Liveness probe",
                "operationId": "health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/queue/stats": {
            "get": {
                "description": "Deferred entries are queued entries waiting for a retry; they are included in the queued count.",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Delivery queue depth",
                "operationId": "queueStats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/repo.QueueCounts"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/Authenticate/username/{username}/password/{password}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Accounts"],
                "summary": "Check credentials",
                "operationId": "authenticate",
                "parameters": [
                    {"type": "string", "example": "alice", "description": "Username", "name": "username", "in": "path", "required": true},
                    {"type": "string", "description": "Password", "name": "password", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "\"1\" on success, \"0\" otherwise", "schema": {"$ref": "#/definitions/handlers.OkResult"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrResult"}}
                }
            }
        },
        "/createaccount/username/{username}/password/{password}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Accounts"],
                "summary": "Register a user",
                "operationId": "createAccount",
                "parameters": [
                    {"type": "string", "example": "alice", "description": "Username", "name": "username", "in": "path", "required": true},
                    {"type": "string", "description": "Password", "name": "password", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "\"1\"", "schema": {"$ref": "#/definitions/handlers.OkResult"}},
                    "400": {"description": "Bad username or password", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "409": {"description": "\"0\": username taken", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrResult"}}
                }
            }
        },
        "/checkuser/username/{username}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Accounts"],
                "summary": "Check whether a username is registered",
                "operationId": "checkUser",
                "parameters": [
                    {"type": "string", "example": "alice", "description": "Username", "name": "username", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "\"1\" if registered, \"0\" otherwise", "schema": {"$ref": "#/definitions/handlers.OkResult"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrResult"}}
                }
            }
        },
        "/createchat": {
            "get": {
                "description": "Creates a chat with the listed members in one transaction. An unknown member fails the whole creation.",
                "produces": ["application/json"],
                "tags": ["Chats"],
                "summary": "Create a chat",
                "operationId": "createChat",
                "parameters": [
                    {"type": "string", "example": "general", "description": "Chat name", "name": "name", "in": "query", "required": true},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "Member usernames (repeatable)", "name": "user", "in": "query", "required": true}
                ],
                "responses": {
                    "201": {"description": "{\"Ok\": null}", "schema": {"$ref": "#/definitions/handlers.OkResult"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "404": {"description": "Unknown member", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "409": {"description": "Chat name taken", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrResult"}}
                }
            }
        },
        "/getchat/chatname/{chat}": {
            "get": {
                "description": "Returns the delivered messages of a chat in delivery order. Supports a weak ETag via If-None-Match and may return 304.\nA chat that exists but has no history yet answers 204.",
                "produces": ["application/json"],
                "tags": ["Chats"],
                "summary": "Read chat history",
                "operationId": "getChat",
                "parameters": [
                    {"type": "string", "example": "general", "description": "Chat name", "name": "chat", "in": "path", "required": true},
                    {"minimum": 1, "type": "integer", "description": "Return only the last N items", "name": "tail", "in": "query"},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.HistoryItem"}},
                        "headers": {"ETag": {"type": "string", "description": "Weak ETag of the history version"}}
                    },
                    "204": {"description": "No history yet", "schema": {"type": "string"}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "404": {"description": "Chat not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chatmembers/chatname/{chat}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Chats"],
                "summary": "List chat members",
                "operationId": "chatMembers",
                "parameters": [
                    {"type": "string", "example": "general", "description": "Chat name", "name": "chat", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}},
                    "404": {"description": "Chat not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/newmessage/chatname/{chat}/username/{user}": {
            "post": {
                "description": "Durably records the message and enqueues it for delivery. The message appears in the history once the delivery worker has processed it.\nSupports idempotency via the Idempotency-Key header (same key → same receipt).",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Post a message",
                "operationId": "newMessage",
                "parameters": [
                    {"type": "string", "example": "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab", "description": "Idempotency key for safe retries (UUID recommended)", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "example": "general", "description": "Chat name", "name": "chat", "in": "path", "required": true},
                    {"type": "string", "example": "alice", "description": "Sender name", "name": "user", "in": "path", "required": true},
                    {"description": "Message payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}
                ],
                "responses": {
                    "202": {
                        "description": "{\"Ok\": null}",
                        "schema": {"$ref": "#/definitions/handlers.OkResult"},
                        "headers": {
                            "Idempotency-Replayed": {"type": "string", "description": "true when the key matched an earlier post"},
                            "X-Message-ID": {"type": "string", "description": "Stored message id"},
                            "X-Queue-Entry-ID": {"type": "string", "description": "Queue entry id"}
                        }
                    },
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "404": {"description": "Chat or user not found", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrResult"}},
                    "503": {"description": "Storage busy, retry", "schema": {"$ref": "#/definitions/handlers.ErrResult"}}
                }
            }
        }
    },
    "definitions": {
        "domain.HistoryItem": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "created_at": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "handlers.ErrResult": {
            "type": "object",
            "properties": {"Err": {}}
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "chat not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "handlers.OkResult": {
            "type": "object",
            "properties": {"Ok": {"type": "string", "example": "1"}}
        },
        "handlers.PostMessageRequest": {
            "type": "object",
            "properties": {"content": {"type": "string", "example": "hi"}}
        },
        "repo.QueueCounts": {
            "type": "object",
            "properties": {
                "deferred": {"type": "integer"},
                "finished": {"type": "integer"},
                "queued": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "go-chat-queue API",
	Description:      "Chat backend with an asynchronous message delivery queue.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
