// Package docs описание HTTP API сервера лицензий для Swagger UI (/docs/*).
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/license/validate": {
            "post": {
                "tags": ["License"],
                "summary": "Проверить лицензию",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.ValidateRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ValidateResponse"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/api/license/update_usage": {
            "post": {
                "tags": ["License"],
                "summary": "Списать кредиты",
                "description": "Идемпотентно по event_id",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.UpdateUsageRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UpdateUsageResponse"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/api/demo/register": {
            "post": {
                "tags": ["Demo"],
                "summary": "Активировать демо",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.DemoRegisterRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DemoResponse"}},
                    "409": {"description": "Демо уже использовано", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/api/demo/status/{email}": {
            "get": {
                "tags": ["Demo"],
                "summary": "Состояние демо",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "email", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DemoResponse"}}}
            }
        },
        "/api/payment/create": {
            "post": {
                "tags": ["Payments"],
                "summary": "Создать платеж",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.PaymentCreateRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentCreateResponse"}},
                    "422": {"description": "Неизвестный пакет", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/api/payment/webhook": {
            "post": {
                "tags": ["Payments"],
                "summary": "Webhook платёжного провайдера",
                "parameters": [{"in": "header", "name": "X-Api-Signature", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Неверная подпись"}}
            }
        },
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Проверка состояния",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Зависимость недоступна"}}
            }
        }
    },
    "definitions": {
        "models.ValidateRequest": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}, "hardware_id": {"type": "string"}}},
        "models.AccountData": {"type": "object", "properties": {
            "email": {"type": "string"}, "status": {"type": "string"}, "credit_balance": {"type": "number"},
            "credit_used": {"type": "number"}, "hours_used": {"type": "number"}, "is_active": {"type": "boolean"}, "demo_used": {"type": "boolean"}}},
        "models.ValidateResponse": {"type": "object", "properties": {
            "is_valid": {"type": "boolean"}, "tier": {"type": "string"}, "expire_date": {"type": "string", "format": "date-time"},
            "message": {"type": "string"}, "data": {"$ref": "#/definitions/models.AccountData"}}},
        "models.UpdateUsageRequest": {"type": "object", "required": ["email"], "properties": {
            "event_id": {"type": "string"}, "email": {"type": "string"}, "credits_used": {"type": "number"},
            "hours_used": {"type": "number"}, "timestamp": {"type": "string", "format": "date-time"}}},
        "models.UpdateUsageResponse": {"type": "object", "properties": {"remaining_credit": {"type": "number"}, "duplicate": {"type": "boolean"}}},
        "models.DemoRegisterRequest": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}}},
        "models.DemoResponse": {"type": "object", "properties": {
            "success": {"type": "boolean"}, "email": {"type": "string"}, "demo_used": {"type": "boolean"},
            "is_active": {"type": "boolean"}, "expire_date": {"type": "string", "format": "date-time"}, "message": {"type": "string"}}},
        "models.PaymentCreateRequest": {"type": "object", "required": ["email", "package"], "properties": {"email": {"type": "string"}, "package": {"type": "string"}}},
        "models.PaymentCreateResponse": {"type": "object", "properties": {"redirect_url": {"type": "string"}, "payment_id": {"type": "string"}}},
        "response.ErrorResponse": {"type": "object", "properties": {"status": {"type": "string"}, "error": {"type": "string"}, "message": {"type": "string"}}}
    }
}`

// SwaggerInfo метаданные документа.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Co-host license server API",
	Description:      "Лицензии, кредиты, демо и оплата пакетов для co-host агента.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
