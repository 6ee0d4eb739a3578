package schema

const systemPrompt = "You analyze REST API endpoints and propose MongoDB-style document schemas."

const userPromptTmpl = `Propose the database collection backing this API endpoint.

Endpoint: %s
Method: %s
Description: %s

Request payload:
%s

Response structure:
%s

Return only a JSON object:
{
  "collection_name": "plural resource name, e.g. users",
  "schema": {"field_name": "string | integer | number | boolean | date | objectId | array | object"},
  "samples": {"field_name": "realistic sample value"}
}

Endpoints on the same resource must share a collection name; sign-in, sign-up
and profile endpoints all use "users".`
