package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "NextLevel Progress API",
        "description": "Learner course progress, completion and certification service",
        "version": "1.0.0"
    },
    "basePath": "/progress/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Enrollments", "description": "Learner ↔ course enrollment lifecycle"},
        {"name": "Progress", "description": "Per-module activity and completion"},
        {"name": "Certificates", "description": "Issued certificates, validation and artifacts"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "learnerId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a learner in a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateEnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Active or completed enrollment already exists"},
                    "412": {"description": "Unmet prerequisites"}
                }
            }
        },
        "/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/modules": {
            "get": {
                "tags": ["Progress"],
                "summary": "List the enrollment's modules with progress",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Composite progress view for an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Enrollment not found"}
                }
            }
        },
        "/enrollments/{id}/next-module": {
            "get": {
                "tags": ["Progress"],
                "summary": "First not-yet-completed module in catalog order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK, data is null when all modules are done", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/modules/{moduleId}/unlocked": {
            "get": {
                "tags": ["Progress"],
                "summary": "Whether prior required modules allow access to this one",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "moduleId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Module not in the enrollment's course"}
                }
            }
        },
        "/enrollments/{id}/modules/{moduleId}/start": {
            "post": {
                "tags": ["Progress"],
                "summary": "Mark a module as started",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "moduleId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Module already started"},
                    "412": {"description": "Enrollment not active"}
                }
            }
        },
        "/enrollments/{id}/modules/{moduleId}/complete": {
            "post": {
                "tags": ["Progress"],
                "summary": "Mark a module as completed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "moduleId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Module was never started"},
                    "409": {"description": "Module already completed"}
                }
            }
        },
        "/enrollments/{id}/certificate": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Issue a certificate for a completed enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Course is not completed"}
                }
            }
        },
        "/courses/{courseId}/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Course roster with module counts",
                "parameters": [
                    {"name": "courseId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/learners/{learnerId}/certificates": {
            "get": {
                "tags": ["Certificates"],
                "summary": "List a learner's certificates",
                "parameters": [
                    {"name": "learnerId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/validate": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Validate a certificate's authenticity",
                "parameters": [
                    {"name": "code", "in": "query", "required": true, "type": "string"},
                    {"name": "hash", "in": "query", "required": false, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown code"}
                }
            }
        },
        "/certificates/files": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Stream a certificate PDF for a signed token",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF stream"},
                    "422": {"description": "Invalid or expired token"}
                }
            }
        },
        "/certificates/{code}": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Get certificate by code",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/{code}/download": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Issue a signed download URL for the certificate PDF",
                "parameters": [
                    {"name": "code", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateEnrollmentRequest": {
            "type": "object",
            "properties": {
                "learner_id": {"type": "string"},
                "course_id": {"type": "string"}
            },
            "required": ["learner_id", "course_id"]
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
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
