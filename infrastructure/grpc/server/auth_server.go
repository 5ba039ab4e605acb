package server

import (
	"context"
	pb "dm-lab/api/account"
	"dm-lab/contract"
	"dm-lab/errors"
)

type AuthServer struct {
	authService contract.IAuthService
}

func NewAuthServer(authService contract.IAuthService) *AuthServer {
	return &AuthServer{authService: authService}
}

func (s *AuthServer) Login(ctx context.Context, req *pb.LoginRequest) (*pb.TokenResponse, error) {
	token, err := s.authService.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.TokenResponse{Token: token}, nil
}

func (s *AuthServer) Register(ctx context.Context, req *pb.RegisterRequest) (*pb.TokenResponse, error) {
	token, err := s.authService.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &pb.TokenResponse{Token: token}, nil
}
