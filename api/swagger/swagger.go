package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "IBUC Transition API",
        "description": "Module and cohort transition engine for the IBUC admin platform",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Cohorts", "description": "Cohort (turma) reads"},
        {"name": "Transitions", "description": "Module transition preview and closure"},
        {"name": "Billing", "description": "Billing reconciliation backlog"}
    ],
    "paths": {
        "/turmas": {
            "get": {
                "tags": ["Cohorts"],
                "summary": "List cohorts",
                "parameters": [
                    {"name": "poloId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "moduloId", "in": "query", "type": "string"},
                    {"name": "anoLetivo", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/turmas/{id}": {
            "get": {
                "tags": ["Cohorts"],
                "summary": "Get one cohort",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/turmas/{id}/preview-transition": {
            "get": {
                "tags": ["Transitions"],
                "summary": "Preview module transition for a cohort",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No current module", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Dependency failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/turmas/{id}/close-module": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Close the cohort's current module",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CloseModuleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Precondition failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Partial commit", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/turmas/{id}/bring-forward": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Enroll students approved in a previous module into the cohort",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BringForwardRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/turmas/close-module/batch": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Close modules for many cohorts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchCloseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cobrancas/reconciliacoes": {
            "get": {
                "tags": ["Billing"],
                "summary": "List billing charges pending reconciliation",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CloseModuleRequest": {
            "type": "object",
            "properties": {
                "alunos_confirmados": {"type": "array", "items": {"type": "string"}},
                "valor_cents": {"type": "integer"}
            }
        },
        "BatchCloseRequest": {
            "type": "object",
            "required": ["turma_ids"],
            "properties": {
                "turma_ids": {"type": "array", "items": {"type": "string"}},
                "valor_cents": {"type": "integer"}
            }
        },
        "BringForwardRequest": {
            "type": "object",
            "required": ["modulo_anterior_id"],
            "properties": {
                "modulo_anterior_id": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
