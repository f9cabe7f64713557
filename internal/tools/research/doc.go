// Package research provides the retrieval tools an investigation can call.
//
// Tools:
//   - web_search: open web search via DuckDuckGo's HTML endpoint (no API key)
//   - social_media_search: placeholder, no live source wired
//   - company_database_search: placeholder, no live source wired
//   - academic_search: placeholder, no live source wired
//   - cache: search result caching so repeated queries return the same payload
package research
