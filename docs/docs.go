package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{.Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/document": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["document"],
                "summary": "Get the trip document",
                "description": "Load the current trip document. Falls back to the local file, then the latest backup, then an empty document.",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/entities.Document"}
                    }
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["document"],
                "summary": "Save the trip document",
                "description": "Replace the whole trip document. last_updated is set by the server.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "in": "body",
                        "name": "request",
                        "description": "Document and change reason",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ports.SaveDocumentRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/ports.SaveDocumentResponse"}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    },
                    "502": {
                        "description": "Bad Gateway",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    }
                }
            }
        },
        "/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["document"],
                "summary": "Store status",
                "description": "Backend in use, file locations and backup state",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/entities.StoreStatus"}
                    }
                }
            }
        },
        "/backups": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["backups"],
                "summary": "List backups",
                "description": "List local document backups, newest first",
                "produces": ["application/json"],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/ports.BackupListResponse"}
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    }
                }
            }
        },
        "/backups/{filename}/restore": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["backups"],
                "summary": "Restore a backup",
                "description": "Replace the document with a backup. The current document is backed up first.",
                "produces": ["application/json"],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Backup filename",
                        "name": "filename",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/ports.RestoreBackupResponse"}
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    },
                    "502": {
                        "description": "Bad Gateway",
                        "schema": {"$ref": "#/definitions/ports.ErrorResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "entities.Backup": {
            "type": "object",
            "properties": {
                "filename": {"type": "string", "example": "trip_data_backup_20250601_080000.json"},
                "timestamp": {"type": "string", "format": "date-time"},
                "size": {"type": "integer"}
            }
        },
        "entities.Document": {
            "type": "object",
            "additionalProperties": true,
            "properties": {
                "meal_proposals": {"type": "object"},
                "activity_proposals": {"type": "object"},
                "alcohol_requests": {"type": "array", "items": {}},
                "packing_progress": {"type": "object"},
                "notes": {"type": "array", "items": {}},
                "custom_activities": {"type": "array", "items": {}},
                "completed_activities": {"type": "array", "items": {}},
                "notifications": {"type": "array", "items": {}},
                "tsa_updates": {"type": "array", "items": {}},
                "last_updated": {"type": "string"}
            }
        },
        "entities.SaveResult": {
            "type": "object",
            "properties": {
                "backend": {"type": "string", "enum": ["local", "github"]},
                "last_updated": {"type": "string"},
                "backup": {"$ref": "#/definitions/entities.Backup"},
                "revision": {"type": "string"},
                "attempts": {"type": "integer"}
            }
        },
        "entities.StoreStatus": {
            "type": "object",
            "properties": {
                "backend": {"type": "string", "enum": ["local", "github"]},
                "document_path": {"type": "string"},
                "backup_dir": {"type": "string"},
                "max_backups": {"type": "integer"},
                "backup_count": {"type": "integer"},
                "latest_backup": {"$ref": "#/definitions/entities.Backup"},
                "remote": {"type": "string"},
                "last_load": {"type": "string", "enum": ["github", "local", "backup", "empty"]}
            }
        },
        "ports.SaveDocumentRequest": {
            "type": "object",
            "required": ["document"],
            "properties": {
                "document": {"$ref": "#/definitions/entities.Document"},
                "change_reason": {"type": "string", "maxLength": 200}
            }
        },
        "ports.SaveDocumentResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "result": {"$ref": "#/definitions/entities.SaveResult"}
            }
        },
        "ports.RestoreBackupResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "filename": {"type": "string"},
                "document": {"$ref": "#/definitions/entities.Document"}
            }
        },
        "ports.BackupListResponse": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/entities.Backup"}},
                "total": {"type": "integer"}
            }
        },
        "ports.ErrorResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "details": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and a token from 'tripboard token issue'"
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "TripBoard API",
	Description:      "Shared trip planning document store",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
