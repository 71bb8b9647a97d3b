// Package livechat delivers text to a live room's chat over the platform's
// web API. Client implements dispatch.Deliverer.
package livechat
