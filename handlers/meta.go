package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetBrandsHandler 車種つきのブランド一覧
func GetBrandsHandler(c *gin.Context) {
	brands, err := Market.ListBrands(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"brands": brands})
}

// GetConditionsHandler 車況一覧 (Rank順)
func GetConditionsHandler(c *gin.Context) {
	conditions, err := Market.ListConditions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"conditions": conditions})
}

func GetTransmissionsHandler(c *gin.Context) {
	transmissions, err := Market.ListTransmissions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"transmissions": transmissions})
}
