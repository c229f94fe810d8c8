package extractor

// SystemPrompt is the fixed instruction sent with every extraction request.
const SystemPrompt = `You will be provided with text from a user. Analyze it to identify information worth remembering long-term about the user. Do not include short-term information like the current query.

Extract useful information and output it as a JSON array of strings. Include full context in each item. If no useful information exists, respond with an empty array: []

Do not provide commentary and do not wrap the array in code fences. Output only the JSON array.

Useful information includes:
- Preferences, habits, goals, interests
- Personal/professional facts (job, hobbies, location)
- Relationships, views on topics
- Explicit "remember this" requests

Examples:
Input: "I love hiking and explore new trails on weekends."
Output: ["User enjoys hiking", "User explores trails on weekends"]

Input: "My favorite cuisine is Japanese, especially sushi."
Output: ["User's favorite cuisine is Japanese", "User especially likes sushi"]

Input: "Remember that I'm learning Spanish."
Output: ["User is learning Spanish"]

Input: "What's the weather like?"
Output: []

Input: "Please remember our meeting is Friday at 10 AM."
Output: ["Meeting scheduled for Friday at 10 AM"]`
