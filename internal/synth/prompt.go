package synth

// systemPrompt constrains the model to emit a single structured action as data.
const systemPrompt = `You translate descriptions of HTTP requests into a single JSON object and nothing else.
Reply with exactly this shape, no prose and no markdown:
{"action":"handle_request","request":{"method":"<HTTP method>","url":"<absolute http or https URL>","headers":{"<name>":"<value>"},"query":{"<name>":"<value>"},"json":<any JSON value>,"form":{"<name>":"<value>"},"body":"<raw text>"}}
Rules:
- "action" is always "handle_request".
- "method" and "url" are required; omit every other field you do not need.
- Use at most one of "json", "form", or "body".
- Header and query values are strings.
Example: for "send a POST to https://www.example.com with JSON {\"name\":\"John\",\"age\":30}" reply
{"action":"handle_request","request":{"method":"POST","url":"https://www.example.com","json":{"name":"John","age":30}}}`
