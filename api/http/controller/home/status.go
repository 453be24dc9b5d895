package home

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wplace/painter/api/common"
	"wplace/painter/codes"
	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/service"
)

// Status 全部账号的调度状态
func Status(c *gin.Context) {
	res := common.Response{}
	res.Timestamp = time.Now().Unix()

	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	res.Data = gin.H{"accounts": service.AllStatuses()}

	c.JSON(http.StatusOK, res)
}

// Diff 指定账号模板的逐色错配统计
func Diff(c *gin.Context) {
	res := common.Response{}
	res.Timestamp = time.Now().Unix()

	s := service.FindScheduler(c.Param("identifier"))
	if s == nil {
		res.Code = codes.CODE_ERR_OBJ_NOT_FOUND
		res.Msg = "account not found"
		c.JSON(http.StatusOK, res)
		return
	}

	diff, err := service.DiffTemplate(c.Request.Context(), s.Assembler, &s.Acct.Template, false)
	if err != nil {
		log.Errorf("diff template for %s: %v", s.Acct.Identifier, err)
		res.Code = codes.CODE_ERR_INTERNAL
		res.Msg = err.Error()
		c.JSON(http.StatusOK, res)
		return
	}

	total := 0
	for _, e := range diff {
		total += e.Count
	}
	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	res.Data = gin.H{"total": total, "colors": diff}
	c.JSON(http.StatusOK, res)
}

// Preview 指定账号模板区域的画布快照 PNG。
// 可选参数 background=#rrggbb 铺底色、border=N 外扩边框
func Preview(c *gin.Context) {
	s := service.FindScheduler(c.Param("identifier"))
	if s == nil {
		c.JSON(http.StatusNotFound, common.Response{
			Code: codes.CODE_ERR_OBJ_NOT_FOUND, Msg: "account not found",
			Timestamp: time.Now().Unix(),
		})
		return
	}

	var background *model.RGB
	if bg := c.Query("background"); bg != "" {
		rgb, ok := model.ParseRGBStr(bg)
		if !ok {
			c.JSON(http.StatusBadRequest, common.Response{
				Code: codes.CODE_ERR_BAD_PARAMS, Msg: "invalid background color",
				Timestamp: time.Now().Unix(),
			})
			return
		}
		background = &rgb
	}
	border, _ := strconv.Atoi(c.DefaultQuery("border", "0"))

	_, coord1, coord2, err := s.Acct.Template.Load()
	if err == nil {
		var data []byte
		data, err = s.Assembler.AssemblePreview(c.Request.Context(), coord1, coord2, background, border)
		if err == nil {
			c.Data(http.StatusOK, "image/png", data)
			return
		}
	}
	log.Errorf("preview for %s: %v", s.Acct.Identifier, err)
	c.JSON(http.StatusInternalServerError, common.Response{
		Code: codes.CODE_ERR_INTERNAL, Msg: err.Error(), Timestamp: time.Now().Unix(),
	})
}
