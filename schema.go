package twinstreams

// configSchema is the JSON schema every Config must satisfy. Validation
// runs against the JSON form of the already-parsed struct, so the schema's
// job is structure: required fields, enums, ranges and typo-catching via
// additionalProperties.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "twinstreams client configuration",
  "type": "object",
  "required": ["transport"],
  "additionalProperties": false,
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-zA-Z][a-zA-Z0-9._-]*$"
    },
    "transport": {
      "type": "object",
      "required": ["kind", "url"],
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["websocket", "nats"]},
        "url": {"type": "string", "minLength": 1},
        "handshake_timeout": {"$ref": "#/definitions/duration"},
        "ping_interval": {"$ref": "#/definitions/duration"},
        "messages_per_second": {"type": "number", "minimum": 0},
        "subject_prefix": {"type": "string"},
        "client_id": {"type": "string"},
        "reconnect": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "disabled": {"type": "boolean"},
            "max_retries": {"type": "integer", "minimum": 0},
            "initial_interval": {"$ref": "#/definitions/duration"},
            "max_interval": {"$ref": "#/definitions/duration"},
            "multiplier": {"type": "number", "minimum": 1}
          }
        }
      }
    },
    "auth": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "kind": {"enum": ["none", "basic", "bearer", "pre-authenticated"]},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "username_env": {"type": "string"},
        "password_env": {"type": "string"},
        "token": {"type": "string"},
        "token_env": {"type": "string"},
        "subject": {"type": "string"}
      }
    },
    "tls": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "ca_files": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "cert_file": {"type": "string"},
        "key_file": {"type": "string"},
        "server_name": {"type": "string"},
        "min_version": {"enum": ["1.2", "1.3"]},
        "insecure_skip_verify": {"type": "boolean"}
      }
    },
    "default_timeout": {"$ref": "#/definitions/duration"},
    "bus_capacity": {"type": "integer", "minimum": 1}
  },
  "definitions": {
    "duration": {
      "type": ["string", "integer"],
      "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"
    }
  }
}`
