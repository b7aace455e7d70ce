package envelope

const schemaURL = "https://orchestra-mcp.dev/schemas/notify/envelope.json"

// schemaDoc closes the envelope shape: the type selects the payload
// schema, and within resource payloads the action selects which fields
// are required.
const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "payload"],
  "properties": {
    "type": {"enum": ["category_update", "statement_update", "ack", "connected"]},
    "user_id": {"type": "string"}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "category_update"}}},
      "then": {"properties": {"payload": {"$ref": "#/$defs/categoryPayload"}}}
    },
    {
      "if": {"properties": {"type": {"const": "statement_update"}}},
      "then": {"properties": {"payload": {"$ref": "#/$defs/statementPayload"}}}
    },
    {
      "if": {"properties": {"type": {"const": "connected"}}},
      "then": {"properties": {"payload": {"$ref": "#/$defs/connectedPayload"}}}
    }
  ],
  "$defs": {
    "id": {"type": "string", "minLength": 1},
    "category": {
      "type": "object",
      "required": ["id", "title", "userId"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "title": {"type": "string"},
        "userId": {"type": "string"},
        "createdAt": {"type": "string"},
        "updatedAt": {"type": "string"}
      }
    },
    "statement": {
      "type": "object",
      "required": ["id", "text", "userId", "categoryId"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "text": {"type": "string"},
        "userId": {"type": "string"},
        "categoryId": {"type": "string"},
        "createdAt": {"type": "string"},
        "updatedAt": {"type": "string"}
      }
    },
    "categoryPayload": {
      "type": "object",
      "oneOf": [
        {
          "required": ["action", "category"],
          "properties": {
            "action": {"enum": ["created", "updated"]},
            "category": {"$ref": "#/$defs/category"}
          }
        },
        {
          "required": ["action", "categoryId"],
          "properties": {
            "action": {"const": "deleted"},
            "categoryId": {"$ref": "#/$defs/id"}
          }
        }
      ]
    },
    "statementPayload": {
      "type": "object",
      "oneOf": [
        {
          "required": ["action", "statement"],
          "properties": {
            "action": {"enum": ["created", "updated"]},
            "statement": {"$ref": "#/$defs/statement"}
          }
        },
        {
          "required": ["action", "statementId"],
          "properties": {
            "action": {"const": "deleted"},
            "statementId": {"$ref": "#/$defs/id"}
          }
        }
      ]
    },
    "connectedPayload": {
      "type": "object",
      "required": ["userId"],
      "properties": {
        "userId": {"type": "string"},
        "clientId": {"type": "string"}
      }
    }
  }
}`
