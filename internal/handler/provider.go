package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weibaohui/llmchats/config"
	"github.com/weibaohui/llmchats/internal/service"
)

type ProviderHandler struct {
	service *service.SessionService
}

func NewProviderHandler(service *service.SessionService) *ProviderHandler {
	return &ProviderHandler{
		service: service,
	}
}

// ProviderInfo 对外暴露的平台信息，密钥做掩码
type ProviderInfo struct {
	Platform    string `json:"platform"`
	DisplayName string `json:"display_name"`
	Model       string `json:"model"`
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
}

func (h *ProviderHandler) List(c *gin.Context) {
	cfg := config.GetConfig()
	byPlatform := make(map[string]config.ProviderConfig)
	for _, pc := range cfg.Providers.All() {
		byPlatform[pc.Platform] = pc
	}

	infos := make([]ProviderInfo, 0, len(h.service.Providers()))
	for _, p := range h.service.Providers() {
		info := ProviderInfo{
			Platform:    p.Name(),
			DisplayName: p.DisplayName(),
		}
		if pc, ok := byPlatform[p.Name()]; ok {
			info.Model = pc.Model
			info.BaseURL = pc.BaseURL
			info.APIKey = maskAPIKey(pc.APIKey)
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, infos)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
