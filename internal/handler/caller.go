package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// CallerHeader 调用者地址请求头
const CallerHeader = "X-Caller-Address"

const callerKey = "caller"

// CallerMiddleware 解析调用者地址，缺失或格式错误时拒绝请求
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(CallerHeader)
		if !common.IsHexAddress(raw) {
			ErrorResponse(c, http.StatusUnauthorized, "missing or invalid "+CallerHeader+" header")
			c.Abort()
			return
		}
		c.Set(callerKey, common.HexToAddress(raw))
		c.Next()
	}
}

// Caller 当前请求的调用者
func Caller(c *gin.Context) common.Address {
	if v, ok := c.Get(callerKey); ok {
		if addr, ok := v.(common.Address); ok {
			return addr
		}
	}
	return common.Address{}
}

func parseAddress(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
