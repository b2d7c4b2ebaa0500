// Package crawler runs a full catalog scrape: it reads the catalog once, then
// for every series fetches the detail page, persists series, genres, and
// episodes, and resolves each episode's streaming mirrors through the site's
// nonce and embed AJAX exchange.
//
// Work fans out per series and per episode. Three semaphores bound how many
// series, episodes, and AJAX calls are in flight at once. A failing series or
// episode is logged and counted; it never cancels its siblings.
package crawler
