package synth

import (
	"fmt"
	"strings"

	"f2b/internal/types"
)

const systemPrompt = `You are a senior backend architect building Node.js REST APIs.
Use ES module syntax (import/export) everywhere and include the .js extension in
every relative import path. Keep one consistent, modern architecture.`

const codebasePromptTmpl = `# %[1]s: full codebase generation

Generate a complete Node.js Express REST API for %[1]s.

## Endpoints (in implementation order)
%[2]s

## Architecture
- ES modules only, "type": "module" in package.json
- src/routes (with an index.js combining routers), src/controllers,
  src/services, src/repositories, src/middlewares, src/utils, src/config
- src/models/schemas for Mongoose models and src/models/domains for Joi
  request validation
- package.json, .env, src/server.js and src/app.js
- Use the db_name and collection_name given in each database_schema
%[3]s%[4]s
## Output
Answer with a JSON array only, no prose and no markdown:
[{"file_path": "path/to/file.js", "code": "file contents"}]`

func referenceSection(title string, files []types.GeneratedFile) string {
	var b strings.Builder
	for _, f := range files {
		if f.FilePath == "" || f.Code == "" {
			continue
		}
		fmt.Fprintf(&b, "### %s\n```javascript\n%s\n```\n\n", f.FilePath, f.Code)
	}
	if b.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("\n## %s reference\nFollow these files for the %s layer:\n\n%s",
		title, strings.ToLower(title), b.String())
}
