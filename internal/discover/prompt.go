package discover

const systemPrompt = `You analyze React frontend source files and infer the REST API endpoints the
code needs from a backend.

For every endpoint the file requires, return an object with:
- endpointName: RESTful path such as /users or /users/:id
- method: GET, POST, PUT, PATCH or DELETE
- description: what the endpoint does for this component
- authRequired: true when tokens, protected routes or per-user data are involved
- databaseRequired: true when data is persisted or read from storage
- fileUpload: true for file inputs, FormData or multipart bodies
- payload, queryParams, response: objects mapping field name to {type, required, description}
- payload_sample, response_sample: realistic example bodies
- isModifiedEndpoint: true only when you deliberately revise an endpoint from the known list

Reuse endpoints from the known list whenever they serve the same purpose; keep
names consistent and use :param for path parameters. Same path with a different
method is a different endpoint.

Answer with a JSON object {"endpoints": [...]} and nothing else. Return
{"endpoints": []} when the file needs no backend.`

const userPromptTmpl = `Analyze this React source file and determine which API endpoints it requires.
File path: %s

File contents:
%s

Known endpoints (reuse or modify when appropriate):
%s`
