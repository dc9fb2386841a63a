package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "eTution API",
        "description": "Tuition marketplace backend: posts, applications, payments",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Accounts and sessions"},
        {"name": "Users", "description": "Role lookup and admin account management"},
        {"name": "Tuitions", "description": "Student tuition posts and admin moderation"},
        {"name": "Applications", "description": "Tutor bids on approved posts"},
        {"name": "Payments", "description": "Hosted checkout and receipts"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a student or tutor account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Exchange a refresh token for a new access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Refresh token expired or revoked"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke the current refresh token",
                "responses": {
                    "204": {"description": "Logged out"}
                }
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Change the current user's password",
                "responses": {
                    "204": {"description": "Changed; all sessions revoked"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user and resolved role",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/role/{email}": {
            "get": {
                "tags": ["Users"],
                "summary": "Resolve a role by email",
                "description": "Self or admin. Missing accounts resolve to student.",
                "parameters": [
                    {"name": "email", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tuitions": {
            "get": {
                "tags": ["Tuitions"],
                "summary": "List tuition posts",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "mine", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Tuitions"],
                "summary": "Post a tuition request (student)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTuitionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tuitions/{id}": {
            "get": {
                "tags": ["Tuitions"],
                "summary": "Get one tuition post",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Tuitions"],
                "summary": "Edit a pending post (owner)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTuitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Post is no longer pending"}
                }
            },
            "delete": {
                "tags": ["Tuitions"],
                "summary": "Delete a post",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Rejected posts are kept for the record"}
                }
            }
        },
        "/tuitions/{id}/status": {
            "patch": {
                "tags": ["Tuitions"],
                "summary": "Approve or reject a pending post (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ModerateTuitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Applications"],
                "summary": "Apply to an approved post (tutor)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Already applied"}
                }
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get one application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Applications"],
                "summary": "Reject (student) or revise salary (tutor)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateApplicationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal transition; approval requires payment"}
                }
            },
            "delete": {
                "tags": ["Applications"],
                "summary": "Withdraw a pending application (tutor)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "409": {"description": "No longer pending"}
                }
            }
        },
        "/payments/checkout": {
            "post": {
                "tags": ["Payments"],
                "summary": "Open a hosted checkout session (student)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckoutRequest"}}
                ],
                "responses": {
                    "200": {"description": "Checkout URL", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already paid"}
                }
            }
        },
        "/payments/success": {
            "patch": {
                "tags": ["Payments"],
                "summary": "Confirm a completed checkout",
                "description": "Idempotent. Replays return already_completed instead of erroring.",
                "responses": {
                    "200": {"description": "Payment recorded; application approved"}
                }
            }
        },
        "/payments": {
            "get": {
                "tags": ["Payments"],
                "summary": "List own payments",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/{id}/receipt": {
            "get": {
                "tags": ["Payments"],
                "summary": "Download the PDF receipt",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "PDF"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/admin/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List accounts (admin)",
                "parameters": [
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/users/{id}/role": {
            "patch": {
                "tags": ["Users"],
                "summary": "Change an account's role (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/admin/users/{id}": {
            "delete": {
                "tags": ["Users"],
                "summary": "Deactivate an account (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deactivated"}
                }
            }
        },
        "/admin/reports/payments": {
            "get": {
                "tags": ["Payments"],
                "summary": "Export all payments as CSV (admin)",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["email", "password", "display_name", "role"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "display_name": {"type": "string"},
                "photo_url": {"type": "string"},
                "role": {"type": "string", "enum": ["student", "tutor"]}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateTuitionRequest": {
            "type": "object",
            "required": ["subject", "class_level", "location", "salary", "days_per_week"],
            "properties": {
                "subject": {"type": "string"},
                "class_level": {"type": "string"},
                "location": {"type": "string"},
                "salary": {"type": "integer"},
                "days_per_week": {"type": "integer"},
                "description": {"type": "string"}
            }
        },
        "ModerateTuitionRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["approved", "rejected"]}
            }
        },
        "ApplyRequest": {
            "type": "object",
            "required": ["tuition_id", "expected_salary"],
            "properties": {
                "tuition_id": {"type": "string"},
                "expected_salary": {"type": "integer"}
            }
        },
        "UpdateApplicationRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["rejected"]},
                "expected_salary": {"type": "integer"}
            }
        },
        "CheckoutRequest": {
            "type": "object",
            "required": ["application_id"],
            "properties": {
                "application_id": {"type": "string"}
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
