package compile

// DefaultCorpus is served when the registry cannot be read.
const DefaultCorpus = `### Assistant scope
Answer questions using general, well-established knowledge. The curated knowledge base is temporarily unavailable, so say so when a question depends on organisation-specific guidance.

### Answer style
Be concise and factual. Prefer short paragraphs and bullet lists. When unsure, say what is uncertain and suggest where the user can verify it.
Keywords: style, format

### Safety
Do not invent deadlines, amounts, legal requirements or contact details. Point the user to the authoritative source instead.
Keywords: safety, accuracy`
